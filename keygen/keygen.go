// Command keygen generates and checks the uid_key of the store config.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/relaynet/streams/server/store/types"
)

// XTEA key length.
const keyLength = 16

// Replaced in tests.
var randReader io.Reader = rand.Reader

func main() {
	var count = flag.Int("count", 1, "number of keys to generate")
	var key = flag.String("validate", "", "uid_key to validate")
	flag.Parse()

	if *key != "" {
		os.Exit(validate(os.Stdout, *key))
	}
	os.Exit(generate(os.Stdout, *count))
}

func generate(out io.Writer, count int) int {
	if count < 1 {
		fmt.Fprintln(os.Stderr, "count must be positive")
		return 1
	}
	for i := 0; i < count; i++ {
		data := make([]byte, keyLength)
		if _, err := io.ReadFull(randReader, data); err != nil {
			fmt.Fprintln(os.Stderr, "failed to generate key:", err)
			return 1
		}
		fmt.Fprintf(out, "\"uid_key\": \"%s\"\n", base64.StdEncoding.EncodeToString(data))
	}
	return 0
}

func validate(out io.Writer, key string) int {
	data, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		fmt.Fprintln(out, "INVALID: not base64:", err)
		return 1
	}

	var gen types.UidGenerator
	if err := gen.Init(1, data); err != nil {
		fmt.Fprintln(out, "INVALID:", err)
		return 1
	}
	// Sanity check: ids must survive the encryption round trip.
	uid := gen.Get()
	if gen.EncodeInt64(gen.DecodeUid(uid)) != uid {
		fmt.Fprintln(out, "INVALID: key does not round trip")
		return 1
	}
	fmt.Fprintln(out, "Valid, sample id", uid.String())
	return 0
}
