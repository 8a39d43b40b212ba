// Package factory instantiates pluggable modules, such as metrics sinks,
// from configuration. A module is named by its type and carries a map of
// raw settings that the registered factory decodes with Decode:
//
//	sink, err := reg.Create(factory.ModuleConfig{
//	    Type: "influx",
//	    Conf: map[string]any{"url": "http://localhost:8086", "bucket": "cnp"},
//	})
package factory
