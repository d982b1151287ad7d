/*
Package config defines the format-agnostic model of a single exposure
analysis. Loaders (see the hcl package) translate user-facing configuration
files into this model; the rest of the application only ever sees the model,
never the source format.
*/
package config
