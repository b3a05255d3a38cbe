// Package logger provides adapters for popular logger libraries to work with garner's Logger interface.
//
// The adapters allow you to use your existing logger with garner without writing boilerplate.
// Note that the standard library's slog.Logger already implements garner.Logger directly.
//
// Example with zap:
//
//	import (
//	    "garner"
//	    "garner/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    store, err := garner.Open[int, string](64, garner.Silo, garner.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    store.Put(1, "hello")
//	}
package logger
