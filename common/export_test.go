package common

var LogLevel = logLevel
