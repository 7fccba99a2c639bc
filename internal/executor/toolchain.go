package executor

import "livecode/internal/protocol"

// Toolchain describes how to build and run one language inside a work
// directory.
type Toolchain struct {
	FileName string
	Compile  []string // nil for interpreted languages
	Run      []string
}

// DefaultToolchains uses the compilers and interpreters on PATH.
func DefaultToolchains() map[protocol.Language]Toolchain {
	return map[protocol.Language]Toolchain{
		protocol.LanguagePython: {
			FileName: "main.py",
			Run:      []string{"python3", "main.py"},
		},
		protocol.LanguageCPP: {
			FileName: "main.cpp",
			Compile:  []string{"g++", "-o", "program", "main.cpp", "-std=c++17"},
			Run:      []string{"./program"},
		},
		protocol.LanguageJava: {
			FileName: "Main.java",
			Compile:  []string{"javac", "Main.java"},
			Run:      []string{"java", "Main"},
		},
	}
}
