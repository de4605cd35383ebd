// Package all wires every built-in warehouse backend into the factory.
//
// It exists purely for side effects: a blank import runs each backend's init,
// which registers its factory and star-schema DDL with the warehouse package.
// Importing it makes the kinds "postgres", "sqlite", and "mysql" available at
// runtime.
//
// Binaries wanting a subset can import the individual backend packages
// instead.
package all

import (
	_ "salesetl/internal/warehouse/mysql"
	_ "salesetl/internal/warehouse/postgres"
	_ "salesetl/internal/warehouse/sqlite"
)
