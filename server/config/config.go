// Package config loads JSON configuration files which may contain comments.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	jcr "github.com/tinode/jsonco"
)

// Matches string values consisting of a single environment variable reference, like "$DB_PASSWORD".
var envRef = regexp.MustCompile(`"\$([A-Za-z_][A-Za-z0-9_]*)"`)

// LoadEnv reads environment variables from the given .env files. Missing files are ignored.
// Variables already present in the environment are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, name := range files {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("config: failed to load %s: %w", name, err)
		}
	}
	return nil
}

// expand replaces "$NAME" string values with the JSON-quoted value of the environment variable.
// Unset variables expand to an empty string.
func expand(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		quoted, _ := json.Marshal(os.Getenv(string(name)))
		return quoted
	})
}

// Parse decodes commented JSON into v. Errors point to the line and character of the problem.
func Parse(raw []byte, v interface{}) error {
	jr := jcr.New(bytes.NewReader(expand(raw)))
	if err := json.NewDecoder(jr).Decode(v); err != nil {
		switch jerr := err.(type) {
		case *json.UnmarshalTypeError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return fmt.Errorf("unmarshal error in %s at %d:%d (offset %d bytes): %s",
				jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
		case *json.SyntaxError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return fmt.Errorf("syntax error at %d:%d (offset %d bytes): %s",
				lnum, cnum, jerr.Offset, jerr.Error())
		default:
			return err
		}
	}
	return nil
}

// Load reads and parses the config file.
func Load(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Parse(raw, v); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}
