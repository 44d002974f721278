package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

const pointsSheetName = "Points"

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ExportCourseInstancePoints writes a workbook with one row per user and one column per chapter number.
func (s *exportService) ExportCourseInstancePoints(ctx context.Context, courseInstanceID uuid.UUID, w io.Writer) error {
	chapterNumbers, rows, err := s.pointsRows(ctx, courseInstanceID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close points workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", pointsSheetName); err != nil {
		return fmt.Errorf("failed to name points sheet: %w", err)
	}

	header := make([]interface{}, 0, len(chapterNumbers)+1)
	header = append(header, "user_id")
	for _, n := range chapterNumbers {
		header = append(header, strconv.Itoa(n))
	}
	if err := f.SetSheetRow(pointsSheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write points header: %w", err)
	}

	for i, row := range rows {
		values := make([]interface{}, 0, len(chapterNumbers)+1)
		values = append(values, row.UserID.String())
		for _, n := range chapterNumbers {
			values = append(values, RoundToTwoDecimals(row.PointsPerChapter[n]))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(pointsSheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write points row: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write points workbook: %w", err)
	}

	s.logger.Info("Exported course instance points",
		"course_instance_id", courseInstanceID,
		"users", len(rows),
		"chapters", len(chapterNumbers))
	return nil
}

// pointsRows sums each user's scores per chapter. Users are ordered by id and chapters by number.
func (s *exportService) pointsRows(ctx context.Context, courseInstanceID uuid.UUID) ([]int, []models.PointsRow, error) {
	instance, err := s.repo.Course().GetCourseInstanceByID(ctx, courseInstanceID)
	if err != nil {
		return nil, nil, notFound(err, "course instance")
	}
	chapters, err := s.repo.Course().GetChaptersByCourseID(ctx, instance.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	exercises, err := s.repo.Exercise().GetByCourseID(ctx, instance.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get exercises: %w", err)
	}
	states, err := s.repo.UserExerciseState().ListByCourseInstanceID(ctx, courseInstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list user exercise states: %w", err)
	}

	chapterNumber := make(map[uuid.UUID]int, len(chapters))
	chapterNumbers := make([]int, 0, len(chapters))
	for _, c := range chapters {
		chapterNumber[c.ID] = c.ChapterNumber
		chapterNumbers = append(chapterNumbers, c.ChapterNumber)
	}
	sort.Ints(chapterNumbers)

	exerciseChapter := make(map[uuid.UUID]int, len(exercises))
	for _, e := range exercises {
		if e.ChapterID == nil {
			continue
		}
		if n, ok := chapterNumber[*e.ChapterID]; ok {
			exerciseChapter[e.ID] = n
		}
	}

	byUser := make(map[uuid.UUID]*models.PointsRow)
	for _, st := range states {
		row, ok := byUser[st.UserID]
		if !ok {
			row = &models.PointsRow{UserID: st.UserID, PointsPerChapter: make(map[int]float64)}
			byUser[st.UserID] = row
		}
		n, ok := exerciseChapter[st.ExerciseID]
		if !ok || st.ScoreGiven == nil {
			continue
		}
		row.PointsPerChapter[n] += *st.ScoreGiven
	}

	rows := make([]models.PointsRow, 0, len(byUser))
	for _, row := range byUser {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UserID.String() < rows[j].UserID.String()
	})
	return chapterNumbers, rows, nil
}
