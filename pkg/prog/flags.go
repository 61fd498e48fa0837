package prog

import "flag"

// FlagSet wraps a [flag.FlagSet] and provides flags shared by several
// subprograms. A shared flag is registered the first time its getter is
// called, so subprograms can ask for it independently.
type FlagSet struct {
	*flag.FlagSet
	config *string
	json   *bool
}

// Config returns a pointer to the value of the -config flag.
func (fs *FlagSet) Config() *string {
	if fs.config == nil {
		var config string
		fs.StringVar(&config, "config", "",
			"Path to a YAML file overriding the kernel configuration")
		fs.config = &config
	}
	return fs.config
}

// JSON returns a pointer to the value of the -json flag.
func (fs *FlagSet) JSON() *bool {
	if fs.json == nil {
		var json bool
		fs.BoolVar(&json, "json", false,
			"Show the output from -version or -buildinfo in JSON")
		fs.json = &json
	}
	return fs.json
}
