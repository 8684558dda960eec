package envtext_test

import (
	"fmt"

	"github.com/ardnew/nanny/envtext"
)

func ExampleParse() {
	m := envtext.Parse(`
# database
export DB_HOST=localhost
DB_USER = admin        # trailing comment
GREETING="hello # world"
`)

	for k, v := range m.All() {
		fmt.Printf("%s=%q\n", k, v)
	}
	// Output:
	// DB_HOST="localhost"
	// DB_USER="admin"
	// GREETING="hello # world"
}

func ExampleMerge() {
	existing := envtext.FromPairs("A", "1", "B", "2")
	incoming := envtext.Parse("B=3\nC=4")

	fmt.Print(envtext.Format(envtext.Merge(existing, incoming, envtext.ModeUpdate)))
	fmt.Print(envtext.Format(envtext.Merge(existing, incoming, envtext.ModeOverwrite)))
	// Output:
	// A=1
	// B=3
	// C=4
	// B=3
	// C=4
}
