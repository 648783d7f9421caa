// Command authkit-demo runs a small auth server backed by SQLite, with an
// in-memory fallback store so the demo keeps working if the database breaks.
//
// Usage:
//
//	AUTHKIT_JWT_SECRET_KEY=dev-secret go run ./cmd/authkit-demo
package main

import (
	"flag"
	"log"
	"net/http"

	"gorm.io/driver/sqlite"
	gormdb "gorm.io/gorm"

	authkit "github.com/threatwatch/authkit"
	"github.com/threatwatch/authkit/stores"
	gormstore "github.com/threatwatch/authkit/stores/gorm"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dbPath := flag.String("db", "authkit-demo.db", "sqlite database path")
	baseURL := flag.String("base-url", "http://localhost:8080", "base URL for links in emails")
	flag.Parse()

	db, err := gormdb.Open(sqlite.Open(*dbPath), &gormdb.Config{})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := stores.NewFailoverCredentialStore(
		gormstore.NewCredentialStore(db),
		stores.NewMemoryCredentialStore(),
	)

	flow := authkit.NewAuthFlow(store, "")
	flow.EmailSender = &authkit.ConsoleEmailSender{}
	flow.BaseURL = *baseURL

	svc := authkit.NewAuthService("authkit-demo", flow)

	mux := http.NewServeMux()
	mux.Handle("/auth/", svc.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("authkit demo. POST /auth/register to get started.\n"))
	})

	log.Printf("authkit demo listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
