package common

// Version is set at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"

// PackageName is used as the metrics namespace.
const PackageName = "insurance_coordinator"
