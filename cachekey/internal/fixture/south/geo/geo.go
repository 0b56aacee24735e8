// Package geo shares its name and type names with the northern geo package,
// for tests that need two distinct types printed alike by fmt.
package geo

type Point struct {
	X, Y int
}
