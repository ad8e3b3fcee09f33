package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/mowsen/fingerprint/internal/secrets"
	"golang.org/x/term"
)

func cmdSecret(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: fingerprintd secret <set|get|delete>")
		os.Exit(1)
	}

	s := secrets.New()

	switch args[0] {
	case "set":
		fmt.Print("Enter server_secret: ")
		val, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading secret: %v\n", err)
			os.Exit(1)
		}
		if err := s.Set(string(val)); err != nil {
			fmt.Fprintf(os.Stderr, "error storing secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("server_secret stored successfully")

	case "get":
		if _, err := s.Get(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("server_secret is set (value withheld)")

	case "delete":
		if err := s.Delete(); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("server_secret deleted")

	default:
		fmt.Fprintf(os.Stderr, "unknown secret command: %s\n", args[0])
		os.Exit(1)
	}
}
