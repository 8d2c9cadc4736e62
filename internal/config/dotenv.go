// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

// WithEnvFile returns a getenv function that falls back to the variables
// defined in the dotenv file at path. Variables set by getenv take precedence.
func WithEnvFile(path string, getenv func(string) string) (func(string) string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return func(name string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return vars[name]
	}, nil
}
