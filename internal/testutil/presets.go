package testutil

// WithExampleData adds the two-category registry used throughout the tests.
//
// Structure:
//
//	A "Servers"
//	  ├── h1 "web-1" (sftp)
//	  └── h2 "web-2" (ssh)
//	B "Staging"
func (b *Builder) WithExampleData() *Builder {
	return b.
		WithCategory("A", Name("Servers")).
		WithHost("h1", Name("web-1"), In("A"), Protocol("sftp"), Address("10.0.0.1"), Port(22)).
		WithHost("h2", Name("web-2"), In("A"), Protocol("ssh"), Address("10.0.0.2"), User("deploy")).
		WithCategory("B", Name("Staging"))
}

// WithNestedData adds a deeper tree for ordering and filter tests.
//
// Structure:
//
//	prod "Production"
//	  ├── db "Databases"
//	  │     ├── pg1 "postgres-primary"
//	  │     └── pg2 "postgres-replica"
//	  └── web "Web"
//	        └── nginx "nginx-edge"
//	lab "Lab"
//	  └── pi "raspberry"
func (b *Builder) WithNestedData() *Builder {
	return b.
		WithCategory("prod", Name("Production")).
		WithCategory("db", Name("Databases"), In("prod")).
		WithHost("pg1", Name("postgres-primary"), In("db"), Protocol("ssh"), Port(22)).
		WithHost("pg2", Name("postgres-replica"), In("db"), Protocol("ssh"), Port(22)).
		WithCategory("web", Name("Web"), In("prod")).
		WithHost("nginx", Name("nginx-edge"), In("web"), Protocol("sftp")).
		WithCategory("lab", Name("Lab")).
		WithHost("pi", Name("raspberry"), In("lab"), Protocol("ftp"), User("pi"))
}
