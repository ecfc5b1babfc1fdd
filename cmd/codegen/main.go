package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/freeboardgames/fbg-lobby/internal/codegen"
)

const usage = "Usage: codegen game1,game2"

func main() {
	logger := log.New(os.Stderr, "[codegen] ", 0)

	var names []string
	switch len(os.Args) {
	case 1:
	case 2:
		names = codegen.DecodeCsv(os.Args[1])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	root := os.Getenv("FBG_ROOT")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			logger.Fatal("getwd:", err)
		}
		if root, err = codegen.FindRoot(wd); err != nil {
			logger.Fatal("find root:", err)
		}
	}

	catalog, err := codegen.Generate(root, names)
	if err != nil {
		if errors.Is(err, codegen.ErrGameNotFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("generate:", err)
	}

	logger.Printf("wrote %d games to %s", len(catalog), codegen.OutputFile)
}
