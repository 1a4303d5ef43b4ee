package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"carelink/config"
	"carelink/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"go.uber.org/zap"
)

func init() {
	// Todos os timestamps gravados pelo gorm em UTC, com precisão de microssegundos
	// (mesma precisão do postgres), para que comparações no banco sejam estáveis.
	gorm.NowFunc = Now
}

// Now é o relógio usado para timestamps persistidos.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Connect abre conexão com o DB (sqlite3 por padrão).
func Connect(conf config.Configuration, log *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch conf.Database {
	case "postgres", "postgresql":
		log.Info("using postgres connection", zap.String("host", conf.DbHost), zap.String("db", conf.DbName))
		dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
			conf.DbHost, conf.DbPort, conf.DbUser, conf.DbName, conf.DbPass, conf.DbSSL)
		db, err = gorm.Open("postgres", dsn)
	default:
		path := conf.DbName
		if path != ":memory:" {
			if dir := filepath.Dir(path); dir != "." {
				if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
					return nil, fmt.Errorf("create sqlite dir: %w", mkErr)
				}
			}
			path += "?_busy_timeout=5000&_foreign_keys=1"
		}
		log.Info("using sqlite3 connection", zap.String("path", conf.DbName))
		db, err = gorm.Open("sqlite3", path)
		if err == nil {
			// sqlite serializa escritas; uma conexão evita SQLITE_BUSY e mantém o
			// banco ":memory:" único entre goroutines.
			db.DB().SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.LogMode(conf.LogLevel == "debug")
	return db, nil
}

// Migrate cria/atualiza as tabelas e índices usados pelo coordenador.
// Os índices únicos são o que garante upsert/insert atômicos entre instâncias.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Contact{},
		&models.ContactIdentity{},
		&models.ConversationControl{},
		&models.Message{},
		&models.ReadMarker{},
		&models.TriageEntry{},
		&models.BotJob{},
	).Error
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// OpenMemory abre um sqlite em memória já migrado (testes e modo local).
func OpenMemory(log *zap.Logger) (*gorm.DB, error) {
	conf := config.Default()
	conf.Database = "sqlite3"
	conf.DbName = ":memory:"
	conf.LogLevel = "error"

	gdb, err := Connect(conf, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		gdb.Close()
		return nil, err
	}
	return gdb, nil
}
