// Package conf implements the proxyup settings file.
//
// # Usage
//
// Settings are loaded once per invocation and passed explicitly to the
// commands that need them:
//
//	settings, err := conf.Load("/home/user/.config/proxyup.toml")
//	if err != nil {
//	    var bootstrap *conf.BootstrapError
//	    if errors.As(err, &bootstrap) {
//	        // a default file was written, ask the user to edit it
//	    }
//	    return err
//	}
//	settings = settings.Resolve(home)
//
// # Load Order
//
// Load walks a fixed sequence and stops at the first failure:
//
//  1. Create the parent directory of the settings file
//  2. Write DefaultSettings and return *BootstrapError if the file is missing
//  3. Parse the file, returning *schema.ParseError on malformed TOML, wrong
//     field types or enum values outside their set
//  4. Validate remote_config_url, binary_path, config_root and
//     service_unit_root, in that order, returning *schema.ValidationError
//     for the first empty one
//
// remote_binary_url is not part of step 4; the commands installing the
// daemon binary check it with Settings.RequireBinaryURL.
//
// # Internal Architecture
//
// TOML is decoded into settingsDTO, whose optional fields are pointers and
// whose enum fields are raw strings. The DTO is then converted into
// Settings, which is where enum values are checked. Saving goes the other
// way through the same DTO, so both directions share one set of keys.
package conf
