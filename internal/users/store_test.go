package users

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

var userColumns = []string{"id", "country_code", "date_of_birth", "first_name", "last_name", "nickname", "gender", "email"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func mattRow(rows *sqlmock.Rows, id int64) *sqlmock.Rows {
	return rows.AddRow(id, "PL", "1999-01-01", "Matt", "Bubel", "mati", "male", "mati@gmail.com")
}

func TestPostgresStoreCreateUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(mattRow(sqlmock.NewRows(userColumns), 7))

	created, err := store.CreateUser(context.Background(), &User{
		ID:          99,
		CountryCode: "PL",
		DateOfBirth: "1999-01-01",
		FirstName:   "Matt",
		LastName:    "Bubel",
		Nickname:    "mati",
		Gender:      "male",
		Email:       "mati@gmail.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, "Matt", created.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WillReturnRows(mattRow(sqlmock.NewRows(userColumns), 1))

	user, err := store.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, &User{
		ID:          1,
		CountryCode: "PL",
		DateOfBirth: "1999-01-01",
		FirstName:   "Matt",
		LastName:    "Bubel",
		Nickname:    "mati",
		Gender:      "male",
		Email:       "mati@gmail.com",
	}, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := store.GetUser(context.Background(), 100)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetUserQueryFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WillReturnError(errors.New(`relation "users" does not exist`))

	_, err := store.GetUser(context.Background(), 1)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, StorageErrorTypeQueryFailed, storageErr.Type)
	assert.True(t, IsStoreUnavailable(err))
}

func TestPostgresStoreConnectionFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})

	_, err := store.ListUsers(context.Background())
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, StorageErrorTypeConnectionFailed, storageErr.Type)
}

func TestPostgresStoreUpdateUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE "users"`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(1, "PL", "1999-01-01", "Mateuszek", "Bubel", "mati", "male", "mati@gmail.com"))

	updated, err := store.UpdateUser(context.Background(), &User{
		ID:          1,
		CountryCode: "PL",
		DateOfBirth: "1999-01-01",
		FirstName:   "Mateuszek",
		LastName:    "Bubel",
		Nickname:    "mati",
		Gender:      "male",
		Email:       "mati@gmail.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.ID)
	assert.Equal(t, "Mateuszek", updated.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeleteUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteUser(context.Background(), 1))
	assert.True(t, IsNotFound(store.DeleteUser(context.Background(), 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListUsersByIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users" (.+) IN`).
		WillReturnRows(mattRow(mattRow(sqlmock.NewRows(userColumns), 1), 2))

	users, err := store.ListUsersByIDs(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].ID)
	assert.Equal(t, int64(2), users[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListUsersByIDsEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	users, err := store.ListUsersByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListUsersByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users" (.+)email = 'mati@gmail.com'`).
		WillReturnRows(mattRow(sqlmock.NewRows(userColumns), 1))

	users, err := store.ListUsersByEmail(context.Background(), "mati@gmail.com")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "mati@gmail.com", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListUsersByNicknameNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "users" (.+)nickname = 'ghost'`).
		WillReturnRows(sqlmock.NewRows(userColumns))

	users, err := store.ListUsersByNickname(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchema(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`users_email_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`users_nickname_idx`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, CreateSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
