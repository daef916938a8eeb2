package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

type FamilyRepository struct {
	db DBTX
}

func NewFamilyRepository(db DBTX) *FamilyRepository {
	return &FamilyRepository{db: db}
}

func (r *FamilyRepository) GetParent(ctx context.Context, parentID int64) (*models.Parent, error) {
	query := `SELECT id, name, email, created_at FROM parents WHERE id = $1`
	var parent models.Parent
	err := r.db.QueryRow(ctx, query, parentID).Scan(
		&parent.ID,
		&parent.Name,
		&parent.Email,
		&parent.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *FamilyRepository) ListParents(ctx context.Context) ([]models.Parent, error) {
	query := `SELECT id, name, email, created_at FROM parents ORDER BY name ASC, id ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := make([]models.Parent, 0)
	for rows.Next() {
		var parent models.Parent
		if err := rows.Scan(&parent.ID, &parent.Name, &parent.Email, &parent.CreatedAt); err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parents, nil
}

func (r *FamilyRepository) GetStudent(ctx context.Context, studentID int64) (*models.Student, error) {
	query := `SELECT id, parent_id, name, created_at FROM students WHERE id = $1`
	var student models.Student
	err := r.db.QueryRow(ctx, query, studentID).Scan(
		&student.ID,
		&student.ParentID,
		&student.Name,
		&student.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *FamilyRepository) ListStudentsByParent(ctx context.Context, parentID int64) ([]models.Student, error) {
	query := `SELECT id, parent_id, name, created_at FROM students WHERE parent_id = $1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return collectStudents(rows)
}

func (r *FamilyRepository) ListStudents(ctx context.Context) ([]models.Student, error) {
	query := `SELECT id, parent_id, name, created_at FROM students ORDER BY parent_id ASC, id ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectStudents(rows)
}

func collectStudents(rows pgx.Rows) ([]models.Student, error) {
	defer rows.Close()
	students := make([]models.Student, 0)
	for rows.Next() {
		var student models.Student
		if err := rows.Scan(&student.ID, &student.ParentID, &student.Name, &student.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return students, nil
}
