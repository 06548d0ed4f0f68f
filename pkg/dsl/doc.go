/*
Package dsl provides a Go DSL for building call-flow scripts programmatically.

Instead of writing script text by hand, flows can be assembled with a
fluent builder, which is handy for generated flows and tests. The builder
renders ordinary script text and compiles it, so a built flow behaves
exactly like the same script loaded from a file.

Example usage:

	b := dsl.New()

	b.Add("welcome").
		Speak(dsl.Text("Hello "), dsl.Var("name"), dsl.Text(", how can I help?")).
		Listen(5 * time.Second).
		Branch("bill", "billing").
		Silence("welcome").
		Default("welcome")

	b.Add("billing").
		Speak(dsl.Text("Your balance is "), dsl.Var("amount")).
		Exit()

	flow, diags, err := b.Build(callflow.WithStrict())
*/
package dsl
