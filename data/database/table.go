package database

import "go.mongodb.org/mongo-driver/mongo"

// Table 一个集合及其名称；mongo 存储的每个集合都实现它
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
}

type table struct {
	name string
	db   *mongo.Database
}

func NewTable(db *mongo.Database, name string) Table {
	return &table{name: name, db: db}
}

func (t *table) GetTableName() string { return t.name }

func (t *table) Collection() *mongo.Collection { return t.db.Collection(t.name) }
