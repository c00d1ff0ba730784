package main

// Domain entities exposed by the catalog service. The JSON field names are
// part of the wire contract and must not change.

type Author struct {
	ID   int64  `json:"ID" db:"id"`
	Name string `json:"name" db:"name"`
}

type Book struct {
	ID       int64  `json:"ID" db:"id"`
	Title    string `json:"title" db:"title"`
	AuthorID int64  `json:"author_ID" db:"author_id"`
	Stock    int64  `json:"stock" db:"stock"`
}

type Order struct {
	ID     string `json:"ID" db:"id"`
	BookID int64  `json:"book_ID" db:"book_id"`
	Amount int64  `json:"amount" db:"amount"`
}

// record is the generic payload shape the query resolver works with, so that
// $select and $expand can add and drop fields per request.
type record map[string]any

func authorRecord(a Author) record {
	return record{"ID": a.ID, "name": a.Name}
}

func bookRecord(b Book) record {
	return record{"ID": b.ID, "title": b.Title, "author_ID": b.AuthorID, "stock": b.Stock}
}

func orderRecord(o Order) record {
	return record{"ID": o.ID, "book_ID": o.BookID, "amount": o.Amount}
}

// ---- entity-set metadata ----

type keyKind int

const (
	keyInt keyKind = iota
	keyUUID
)

// relation is an explicit typed edge between two entity sets. FKField names
// the JSON field carrying the foreign key: it lives on the owning side for
// to-one edges and on the target records for to-many edges.
type relation struct {
	Name    string
	Target  string
	ToMany  bool
	FKField string
}

type entitySet struct {
	Name      string
	KeyKind   keyKind
	Fields    []string
	Relations []relation
}

func (e *entitySet) hasField(name string) bool {
	for _, f := range e.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func (e *entitySet) relation(name string) *relation {
	for i := range e.Relations {
		if e.Relations[i].Name == name {
			return &e.Relations[i]
		}
	}
	return nil
}

var entitySets = map[string]*entitySet{
	"Authors": {
		Name:    "Authors",
		KeyKind: keyInt,
		Fields:  []string{"ID", "name"},
		Relations: []relation{
			{Name: "books", Target: "Books", ToMany: true, FKField: "author_ID"},
		},
	},
	"Books": {
		Name:    "Books",
		KeyKind: keyInt,
		Fields:  []string{"ID", "title", "author_ID", "stock"},
		Relations: []relation{
			{Name: "author", Target: "Authors", FKField: "author_ID"},
			{Name: "orders", Target: "Orders", ToMany: true, FKField: "book_ID"},
		},
	},
	"Orders": {
		Name:    "Orders",
		KeyKind: keyUUID,
		Fields:  []string{"ID", "book_ID", "amount"},
		Relations: []relation{
			{Name: "book", Target: "Books", FKField: "book_ID"},
		},
	},
}

// serviceDocument lists the entity sets served under /catalog.
func serviceDocument() record {
	return record{"value": []record{
		{"name": "Authors", "url": "Authors"},
		{"name": "Books", "url": "Books"},
		{"name": "Orders", "url": "Orders"},
	}}
}

// rootDocument lists the services mounted on this server.
func rootDocument() record {
	return record{"value": []record{
		{"name": "catalog", "url": "catalog"},
	}}
}
