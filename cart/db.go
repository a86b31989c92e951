package cart

/* Handle SQLite database connection */

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

var Repo *SQLiteDatabase

func InitDatabase(filename string) {
	db, err := sql.Open("sqlite3", filename+"?_foreign_keys=on")
	if err != nil {
		log.Fatalf("Error in InitDatabase(): %v\n", err)
	}

	Repo = NewSQLiteDatabase(db)

	if err := Repo.Migrate(); err != nil {
		log.Printf("Migrate failed:\n")
		log.Fatal(err)
	}
}
