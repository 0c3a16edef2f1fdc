package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"family_messaging_service/internal/directory/domain"
	errprocess "family_messaging_service/pkg/err"
)

// UserRepository definition read access to the user directory
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error)
	FindChatMembers(ctx context.Context, chatID string) ([]domain.User, error)
	// FindChatMembersByFirstNames resolves mention candidates against the
	// chat's current members, case-sensitive on first name.
	FindChatMembersByFirstNames(ctx context.Context, chatID string, firstNames []string) ([]domain.User, error)
	// AutocompleteMentionCandidates returns up to limit members whose first
	// name starts with query (case-insensitive), excluding the requester.
	AutocompleteMentionCandidates(ctx context.Context, chatID, query, excludeUserID string, limit int) ([]domain.User, error)
}

type userRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository create a UserRepository
func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepository{db: db}
}

const userColumns = "u.id, u.email, u.first_name, u.last_name, u.role, u.status"

// likeEscaper neutralizes LIKE metacharacters so a query like "100%" only
// matches names that literally start with it.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id = $1", userID)

	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errprocess.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, userIDs []string) ([]domain.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id = ANY($1)", userIDs)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r *userRepository) FindChatMembers(ctx context.Context, chatID string) ([]domain.User, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+userColumns+` FROM users u
		 JOIN chat_memberships m ON m.user_id = u.id
		 WHERE m.chat_id = $1
		 ORDER BY u.first_name`, chatID)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r *userRepository) FindChatMembersByFirstNames(ctx context.Context, chatID string, firstNames []string) ([]domain.User, error) {
	if len(firstNames) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+userColumns+` FROM users u
		 JOIN chat_memberships m ON m.user_id = u.id
		 WHERE m.chat_id = $1 AND u.first_name = ANY($2)`, chatID, firstNames)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r *userRepository) AutocompleteMentionCandidates(ctx context.Context, chatID, query, excludeUserID string, limit int) ([]domain.User, error) {
	queryStr := "SELECT " + userColumns + ` FROM users u
	 JOIN chat_memberships m ON m.user_id = u.id
	 WHERE m.chat_id = $1 AND u.id <> $2`
	params := []interface{}{chatID, excludeUserID}

	if q := strings.TrimSpace(query); q != "" {
		queryStr += fmt.Sprintf(" AND LOWER(u.first_name) LIKE $%d", len(params)+1)
		params = append(params, escapeLike(strings.ToLower(q))+"%")
	}

	queryStr += fmt.Sprintf(" ORDER BY u.first_name LIMIT $%d", len(params)+1)
	params = append(params, limit)

	rows, err := r.db.Query(ctx, queryStr, params...)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}
