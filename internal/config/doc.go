// Package config handles configuration loading, parsing, and validation
// from dotenv files, environment variables, an optional YAML file and
// command-line flags. Environment variable names follow the deployment
// convention of the OCR service (BAIDU_PADDLE_OCR_API_URL and friends).
package config
