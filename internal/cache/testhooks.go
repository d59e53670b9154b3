package cache

// fillHook, when set, runs between a cache miss and the in-flight
// registration in GetOrFill. Tests use it to interleave a competing fill
// into that window. Never set outside tests.
var fillHook func(key string)
