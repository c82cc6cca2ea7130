// Package tool defines callable tools that graph nodes invoke with
// structured arguments.
//
// A Tool declares its parameters. Call validates arguments against them
// before running the tool. Bad input is reported on Result.InputError so
// callers can surface a friendly message without treating it as a failure;
// only genuine tool failures come back as errors.
//
// Builtins returns a Registry with the calculator and text tools.
package tool
