package validator

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateSlideSubmissionTasks checks that every answered task belongs to the slide and is answered once.
func (bv *BusinessValidator) ValidateSlideSubmissionTasks(submission *models.StudentExerciseSlideSubmission, slideTasks []*models.ExerciseTask) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(submission)...)

	known := make(map[uuid.UUID]bool, len(slideTasks))
	for _, task := range slideTasks {
		known[task.ID] = true
	}

	seen := make(map[uuid.UUID]bool, len(submission.ExerciseTaskSubmissions))
	for i, ts := range submission.ExerciseTaskSubmissions {
		field := fmt.Sprintf("exercise_task_submissions[%d].exercise_task_id", i)
		if !known[ts.ExerciseTaskID] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "task does not belong to the slide",
				Value:   ts.ExerciseTaskID,
				Rule:    "task_on_slide",
			})
			continue
		}
		if seen[ts.ExerciseTaskID] {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "task answered more than once",
				Value:   ts.ExerciseTaskID,
				Rule:    "unique_task",
			})
		}
		seen[ts.ExerciseTaskID] = true
	}

	return errors
}

// ValidatePeerReviewAnswers keeps answers to questions of the config and reports missing required answers.
func (bv *BusinessValidator) ValidatePeerReviewAnswers(answers []models.PeerReviewAnswer, questions []*models.PeerReviewQuestion) ([]models.PeerReviewAnswer, ValidationErrors) {
	byID := make(map[uuid.UUID]*models.PeerReviewQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	kept := make([]models.PeerReviewAnswer, 0, len(answers))
	answered := make(map[uuid.UUID]bool, len(answers))
	for _, answer := range answers {
		if _, ok := byID[answer.PeerReviewQuestionID]; !ok {
			continue
		}
		kept = append(kept, answer)
		answered[answer.PeerReviewQuestionID] = true
	}

	var errors ValidationErrors
	for _, q := range questions {
		if q.AnswerRequired && !answered[q.ID] {
			errors = append(errors, ValidationError{
				Field:   "peer_review_question_submissions",
				Message: "required question was not answered",
				Value:   q.ID,
				Rule:    "answer_required",
			})
		}
	}
	return kept, errors
}

// ValidateCustomPoints requires a teacher-given score to fit the exercise scale.
func (bv *BusinessValidator) ValidateCustomPoints(scoreGiven *float64, scoreMaximum int) ValidationErrors {
	if scoreGiven == nil {
		return ValidationErrors{{
			Field:   "manual_points",
			Message: "is required for custom points",
			Rule:    "required",
		}}
	}
	if *scoreGiven < 0 || *scoreGiven > float64(scoreMaximum) {
		return ValidationErrors{{
			Field:   "manual_points",
			Message: fmt.Sprintf("must be between 0 and %d", scoreMaximum),
			Value:   *scoreGiven,
			Rule:    "points_range",
		}}
	}
	return nil
}

func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("uuid_not_nil", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				return true
			}
			field = field.Elem()
		}
		id, ok := field.Interface().(uuid.UUID)
		return ok && id != uuid.Nil
	})

	bv.validate.RegisterValidation("grading_progress", func(fl validator.FieldLevel) bool {
		return models.GradingProgress(fl.Field().String()).Valid()
	})

	bv.validate.RegisterValidation("points_strategy", func(fl validator.FieldLevel) bool {
		return models.UserPointsUpdateStrategy(fl.Field().String()).Valid()
	})

	bv.validate.RegisterValidation("teacher_decision", func(fl validator.FieldLevel) bool {
		return models.TeacherDecisionType(fl.Field().String()).Valid()
	})

	bv.validate.RegisterValidation("reviewing_stage", func(fl validator.FieldLevel) bool {
		return models.ReviewingStage(fl.Field().String()).Valid()
	})
}
