// gsmc compiles GSM programs.
//
// GSM is a small imperative language of 32-bit integer variables,
// conditionals and counted loops. gsmc parses it, lowers it to IR and emits
// LLVM IR, amd64 or arm64 assembly, or a linked executable.
//
// Usage:
//
//	# Emit LLVM IR on stdout
//	gsmc compile prog.gsm
//
//	# Optimize harder and write assembly to a file
//	gsmc compile prog.gsm --emit asm -O 2 -o prog.s
//
//	# Report every syntax error in several files
//	gsmc check a.gsm b.gsm
//
//	# Execute and print the final variable values
//	gsmc run prog.gsm
//
//	# Build a native executable with the system toolchain
//	gsmc build prog.gsm -o prog
//
//	# Recompile on every save
//	gsmc watch src/
package main

func main() {
	Execute()
}
