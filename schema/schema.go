// Package schema describes the relational metadata the engine plans and
// executes queries against: tables, columns, primary keys and the
// relationships (including many-to-many junctions) between tables.
package schema

import (
	"fmt"

	"github.com/zerosync/ivmengine/internal/ivmerr"
)

// ColumnType is the declared type of a column; it does not change the
// runtime row.Value representation but lets the planner and validators
// reject nonsensical comparisons early.
type ColumnType uint8

const (
	TypeString ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeJSON
)

type Column struct {
	Name string
	Type ColumnType
}

// Cardinality is the "many" side indicator of a Connection.
type Cardinality uint8

const (
	One Cardinality = iota
	Many
)

// Connection is one leg of a Relationship: an equal-length pair of
// source/destination column lists plus the destination table and the
// cardinality of the destination side.
type Connection struct {
	SourceFields []string
	DestFields   []string
	DestTable    string
	Cardinality  Cardinality
}

// Relationship is one or two Connections. A single connection is a
// direct one/many relationship; two connections encode a many-to-many
// junction, chained source -> junction -> destination.
type Relationship struct {
	Name        string
	Connections []Connection
}

func (r Relationship) IsJunction() bool { return len(r.Connections) == 2 }

// Table is a named, ordered set of columns plus its primary key.
type Table struct {
	Name          string
	Columns       []Column
	PrimaryKey    []string
	Relationships map[string]Relationship
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Schema is the full set of tables known to the engine.
type Schema struct {
	tables map[string]Table
}

func New(tables ...Table) *Schema {
	s := &Schema{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

func (s *Schema) Table(name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return Table{}, ivmerr.Schema.New("unknown table %q", name)
	}
	return t, nil
}

func (s *Schema) MustTable(name string) Table {
	t, err := s.Table(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Schema) Relationship(table, name string) (Relationship, error) {
	t, err := s.Table(table)
	if err != nil {
		return Relationship{}, err
	}
	rel, ok := t.Relationships[name]
	if !ok {
		return Relationship{}, ivmerr.Schema.New("unknown relationship %q on table %q", name, table)
	}
	return rel, nil
}

// Validate checks that every table's primary key is non-empty and names
// declared columns, and that each relationship connection has
// equal-length, non-empty field lists and a known destination table.
// Connection field names are not checked against the tables' columns.
func (s *Schema) Validate() error {
	for _, t := range s.tables {
		for _, pk := range t.PrimaryKey {
			if _, ok := t.Column(pk); !ok {
				return ivmerr.Schema.New("table %q: primary key column %q not declared", t.Name, pk)
			}
		}
		if len(t.PrimaryKey) == 0 {
			return ivmerr.Schema.New("table %q: primary key must be non-empty", t.Name)
		}
		for relName, rel := range t.Relationships {
			for _, conn := range rel.Connections {
				if len(conn.SourceFields) != len(conn.DestFields) || len(conn.SourceFields) == 0 {
					return ivmerr.Schema.New("table %q relationship %q: source/dest field lists must be equal-length and non-empty", t.Name, relName)
				}
				if _, ok := s.tables[conn.DestTable]; !ok {
					return ivmerr.Schema.New("table %q relationship %q: unknown destination table %q", t.Name, relName, conn.DestTable)
				}
			}
		}
	}
	return nil
}

func (s *Schema) String() string {
	return fmt.Sprintf("schema(%d tables)", len(s.tables))
}

// NameMapper translates table and column names between a client-facing
// vocabulary and the server-side vocabulary. It replaces the teacher
// source's runtime-reflection/proxy name translation with an explicit
// bidirectional table, per spec.md §9's redesign note.
type NameMapper struct {
	clientToServerTable map[string]string
	serverToClientTable map[string]string
	// column maps are keyed by server table name, since a client column
	// name is only unambiguous within the table it belongs to.
	clientToServerColumn map[string]map[string]string
	serverToClientColumn map[string]map[string]string
}

func NewNameMapper() *NameMapper {
	return &NameMapper{
		clientToServerTable:   map[string]string{},
		serverToClientTable:   map[string]string{},
		clientToServerColumn:  map[string]map[string]string{},
		serverToClientColumn:  map[string]map[string]string{},
	}
}

// MapTable registers a client<->server table name pair.
func (m *NameMapper) MapTable(client, server string) *NameMapper {
	m.clientToServerTable[client] = server
	m.serverToClientTable[server] = client
	if _, ok := m.clientToServerColumn[server]; !ok {
		m.clientToServerColumn[server] = map[string]string{}
		m.serverToClientColumn[server] = map[string]string{}
	}
	return m
}

// MapColumn registers a client<->server column name pair scoped to the
// given server table name.
func (m *NameMapper) MapColumn(serverTable, client, server string) *NameMapper {
	if _, ok := m.clientToServerColumn[serverTable]; !ok {
		m.clientToServerColumn[serverTable] = map[string]string{}
		m.serverToClientColumn[serverTable] = map[string]string{}
	}
	m.clientToServerColumn[serverTable][client] = server
	m.serverToClientColumn[serverTable][server] = client
	return m
}

func (m *NameMapper) ServerTable(client string) (string, error) {
	if server, ok := m.clientToServerTable[client]; ok {
		return server, nil
	}
	return "", ivmerr.Schema.New("unknown client table name %q", client)
}

func (m *NameMapper) ClientTable(server string) (string, error) {
	if client, ok := m.serverToClientTable[server]; ok {
		return client, nil
	}
	return "", ivmerr.Schema.New("unknown server table name %q", server)
}

func (m *NameMapper) ServerColumn(serverTable, client string) (string, error) {
	if cols, ok := m.clientToServerColumn[serverTable]; ok {
		if server, ok := cols[client]; ok {
			return server, nil
		}
	}
	return "", ivmerr.Schema.New("unknown client column %q on table %q", client, serverTable)
}

func (m *NameMapper) ClientColumn(serverTable, server string) (string, error) {
	if cols, ok := m.serverToClientColumn[serverTable]; ok {
		if client, ok := cols[server]; ok {
			return client, nil
		}
	}
	return "", ivmerr.Schema.New("unknown server column %q on table %q", server, serverTable)
}

// Inverse returns a NameMapper with client and server swapped, used to
// implement the round-trip law `mapAST(mapAST(a, c2s), s2c) == a`.
func (m *NameMapper) Inverse() *NameMapper {
	inv := NewNameMapper()
	for c, s := range m.clientToServerTable {
		inv.MapTable(s, c)
	}
	for serverTable, cols := range m.clientToServerColumn {
		for client, server := range cols {
			// the inverse mapper's "server table" is the original
			// client table name.
			origClient := m.serverToClientTable[serverTable]
			inv.MapColumn(origClient, server, client)
		}
	}
	return inv
}
