package common

// Version is stamped at build time via -ldflags "-X ...common.Version=...".
var Version = "v0.0.0"
