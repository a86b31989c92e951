package cart

import (
	"database/sql"
	"errors"
	"log"
	"storefront/error_messages"

	"github.com/mattn/go-sqlite3"
)

func NewSQLiteDatabase(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db: db,
	}
}

func (r *SQLiteDatabase) Migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS shopping_cart(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL UNIQUE,
        payment_ref TEXT NOT NULL DEFAULT ''
    );
    CREATE TABLE IF NOT EXISTS cart_item(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        shopping_cart_id INTEGER NOT NULL,
        product_id INTEGER NOT NULL,
        title TEXT NOT NULL,
        unit_price TEXT NOT NULL,
        quantity INTEGER NOT NULL CHECK (quantity > 0),
        image TEXT NOT NULL DEFAULT '',
        position INTEGER NOT NULL,
        UNIQUE (shopping_cart_id, product_id),
        FOREIGN KEY (shopping_cart_id)
            REFERENCES shopping_cart (id)
            ON DELETE CASCADE
    );
    `

	_, err := r.db.Exec(query)
	return err
}

/**********/
/* CREATE */
/**********/

func (r *SQLiteDatabase) CreateCartEntry(session_id string) (*ShoppingCart, error) {
	var shopping_cart ShoppingCart = ShoppingCart{SessionID: session_id}

	res, err := r.db.Exec("INSERT INTO shopping_cart(session_id, payment_ref) values(?, ?)", shopping_cart.SessionID, "")
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			if errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintUnique) {
				return nil, error_messages.ErrDuplicate
			}
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	shopping_cart.ID = id

	return &shopping_cart, nil
}

/**********/
/* UPDATE */
/**********/

// SaveCart replaces every stored line of the shopping cart with the contents
// of c, keeping c's display order.
func (r *SQLiteDatabase) SaveCart(shopping_cart_id int64, c *Cart) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cart_item WHERE shopping_cart_id = ?", shopping_cart_id); err != nil {
		return err
	}

	for position, item := range c.Items() {
		_, err := tx.Exec("INSERT INTO cart_item(shopping_cart_id, product_id, title, unit_price, quantity, image, position) values(?,?,?,?,?,?,?)",
			shopping_cart_id, item.ProductID, item.Title, item.UnitPrice, item.Quantity, item.Image, position)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) {
				if errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintUnique) {
					return error_messages.ErrDuplicate
				}
			}
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLiteDatabase) UpdatePaymentRef(session_id string, payment_ref string) error {
	shopping_cart, err := r.GetCartBySessionID(session_id)
	if err != nil {
		return error_messages.ErrNotExists
	}
	return r.updateCart(shopping_cart.ID, "payment_ref", payment_ref)
}

func (r *SQLiteDatabase) UpdateSessionID(session_id string, new_session_id string) error {
	shopping_cart, err := r.GetCartBySessionID(session_id)
	if err != nil {
		return error_messages.ErrNotExists
	}
	return r.updateCart(shopping_cart.ID, "session_id", new_session_id)
}

func (r *SQLiteDatabase) updateCart(id int64, column string, newval string) error {
	res, err := r.db.Exec("UPDATE shopping_cart SET "+column+" = ? WHERE id = ?", newval, id)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return error_messages.ErrUpdateFailed
	}

	return nil
}

/*******/
/* GET */
/*******/

// Return a user's ShoppingCart struct based on their session id.
func (r *SQLiteDatabase) GetCartBySessionID(session_id string) (*ShoppingCart, error) {
	return r.getCartByColumn("session_id", session_id)
}

// Return a user's ShoppingCart struct based on the reference the payment
// provider handed back for it.
func (r *SQLiteDatabase) GetCartByPaymentRef(payment_ref string) (*ShoppingCart, error) {
	if payment_ref == "" {
		return nil, error_messages.ErrNotExists
	}
	return r.getCartByColumn("payment_ref", payment_ref)
}

func (r *SQLiteDatabase) getCartByColumn(col_title string, col_val string) (*ShoppingCart, error) {
	row := r.db.QueryRow("SELECT id, session_id, payment_ref FROM shopping_cart WHERE "+col_title+" = ?", col_val)

	var shopping_cart ShoppingCart
	if err := row.Scan(&shopping_cart.ID, &shopping_cart.SessionID, &shopping_cart.PaymentRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, error_messages.ErrNotExists
		}
		return nil, err
	}
	return &shopping_cart, nil
}

// LoadCart rebuilds the in-memory Cart for a session. A session that has no
// stored cart yet gets an empty one.
func (r *SQLiteDatabase) LoadCart(session_id string) (*Cart, error) {
	shopping_cart, err := r.GetCartBySessionID(session_id)
	if err != nil {
		if err == error_messages.ErrNotExists {
			return New(), nil
		}
		log.Printf("LoadCart: GetCartBySessionID: %v", err)
		return nil, err
	}
	return r.loadItems(shopping_cart.ID)
}

func (r *SQLiteDatabase) loadItems(id int64) (*Cart, error) {
	rows, err := r.db.Query("SELECT product_id, title, unit_price, quantity, image FROM cart_item WHERE shopping_cart_id = ? ORDER BY position", id)
	if err != nil {
		log.Printf("Error in loadItems(): %v\n", err)
		return nil, err
	}

	defer rows.Close()

	c := New()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ProductID, &item.Title, &item.UnitPrice, &item.Quantity, &item.Image); err != nil {
			return nil, err
		}
		c.items[item.ProductID] = &item
		c.order = append(c.order, item.ProductID)
	}

	err = rows.Err()
	if err != nil {
		log.Printf("Error in loadItems(): %v\n", err)
		return nil, err
	}

	return c, nil
}

/**********/
/* DELETE */
/**********/

func (r *SQLiteDatabase) DeleteCart(session_id string) error {
	res, err := r.db.Exec("DELETE FROM shopping_cart WHERE session_id = ?", session_id)
	err = r.checkDeleteError(res, err)
	return err
}

func (r *SQLiteDatabase) checkDeleteError(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return error_messages.ErrDeleteFailed
	}

	return err
}
