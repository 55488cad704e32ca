package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/reservations_backend/utils"
)

// Prints the bcrypt hash of a trigger key, for the TRIGGER_KEY_HASH env of
// the manual run endpoints.
func main() {
	key := flag.String("key", "", "Trigger key to hash.")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "usage: hash-key -key <trigger key>")
		os.Exit(1)
	}

	hash, err := utils.HashTriggerKey(*key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
