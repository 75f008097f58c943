// Package demo holds the scenes of the example bots: a greeter and an echo
// scene entered through global commands, and a five step wizard that new
// sessions start in.
package demo
