package otelx

import "os"

// lookupEnv is a seam for tests.
var lookupEnv = os.LookupEnv
