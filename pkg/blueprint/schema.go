package blueprint

// schemaSource constrains CUE blueprints. Components are closed so a
// misspelled field is reported with its position; properties stay open.
const schemaSource = `
#Component: {
	id?:         string
	name?:       string
	type:        string & !=""
	provider?:   string
	properties?: {...}
}

#Connection: {
	from:  string & !=""
	to:    string & !=""
	type?: string
}

#Blueprint: {
	blueprintId?: string
	name?:        string
	components:   [...#Component] | {[string]: #Component}
	connections?: [...#Connection]
	...
}
`
