package config

import "github.com/spf13/pflag"

// Flags are the command-line overrides. They win over the file and the
// environment, but only when set explicitly.
type Flags struct {
	ConfigPath string
	Dev        bool
	LogPath    string
	Model      string
	Precontext string
	Domain     string
}

func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to the config file (default "+DefaultPath()+")")
	fs.BoolVar(&f.Dev, "dev", false, "Development mode")
	fs.StringVar(&f.LogPath, "logPath", "", "Path to save the log file")
	fs.StringVar(&f.Model, "model", "", "Model to chat with")
	fs.StringVar(&f.Precontext, "precontext", "", "Server-side precontext; empty for plain chat")
	fs.StringVar(&f.Domain, "domain", "", "API domain, overrides "+EnvDomain)
}

// Apply copies every flag the user actually passed into c.
func (f *Flags) Apply(c *Config, fs *pflag.FlagSet) {
	if fs.Changed("dev") {
		c.Dev = f.Dev
	}
	if fs.Changed("logPath") {
		c.Log.Path = f.LogPath
	}
	if fs.Changed("model") {
		c.Model = f.Model
	}
	if fs.Changed("precontext") {
		c.Precontext = f.Precontext
	}
	if fs.Changed("domain") {
		c.Endpoint.Domain = f.Domain
	}
}

// Path is the config file to read: --config or the default location.
func (f *Flags) Path() string {
	if f.ConfigPath != "" {
		return f.ConfigPath
	}
	return DefaultPath()
}
