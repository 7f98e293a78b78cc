package main

// General API documentation for swaggo. Run `make swagger-gen` to write
// internal/apidocs/swagger.json, then build with -tags=swagger to serve it.
//
// @title           modelapi
// @version         1.0
// @description     Blocking HTTP API for text completion, chat turns, branch scoring and model lifecycle control.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
