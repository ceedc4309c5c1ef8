// Package vm implements a Squeak-compatible bytecode virtual machine.
//
// This package contains:
//   - Tagged value representation with 31-bit SmallIntegers
//   - Handle-addressed object memory with mark/sweep reclamation
//   - Image loading (plain or gzip, either byte order) and snapshot writing
//   - Bytecode interpreter with context recycling
//   - Global method cache and the numbered primitive table
//   - Cooperative process scheduler over heap semaphores
//   - An object inspector and a method invocation profiler
package vm
