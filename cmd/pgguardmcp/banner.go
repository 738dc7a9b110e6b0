package main

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// isTTY returns true if the given file descriptor is a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

var bannerLines = []string{
	`                                          _                         `,
	`  _ __   __ _  __ _ _   _  __ _ _ __ __| |  _ __ ___   ___ _ __   `,
	` | '_ \ / _' |/ _' | | | |/ _' | '__/ _' | | '_ ' _ \ / __| '_ \  `,
	` | |_) | (_| | (_| | |_| | (_| | | | (_| | | | | | | | (__| |_) | `,
	` | .__/ \__, |\__, |\__,_|\__,_|_|  \__,_| |_| |_| |_|\___| .__/  `,
	` |_|    |___/ |___/                                       |_|     `,
}

// printBanner prints the ASCII art banner followed by the version. When
// useColor is true the lines shade from green to cyan.
func printBanner(w io.Writer, useColor bool) {
	if !useColor {
		for _, line := range bannerLines {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, " %s\n\n", version)
		return
	}
	colors := []string{
		"\033[1;32m",
		"\033[1;32m",
		"\033[1;92m",
		"\033[1;36m",
		"\033[1;96m",
		"\033[1;96m",
	}
	for i, line := range bannerLines {
		fmt.Fprintf(w, "%s%s\033[0m\n", colors[i%len(colors)], line)
	}
	fmt.Fprintf(w, " \033[2m%s\033[0m\n\n", version)
}
