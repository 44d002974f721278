package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

// fixture is a course with one instance, a base module and a first chapter, wired to in-memory services.
type fixture struct {
	t         *testing.T
	ctx       context.Context
	repo      *fakeRepo
	grader    *fakeGrader
	publisher *events.MockEventPublisher
	manager   ServiceManager
	now       time.Time

	courseID   uuid.UUID
	instanceID uuid.UUID
	baseModule *models.CourseModule
	chapter    *models.Chapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		repo:      newFakeRepo(),
		grader:    newFakeGrader(),
		publisher: events.NewMockEventPublisher(logger),
		now:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		courseID:  uuid.New(),
	}
	// Rows are stamped just before the service clock so fresh reservations are within their TTL.
	f.repo.m.clock = f.now.Add(-time.Minute)

	instance := &models.CourseInstance{CourseID: f.courseID}
	f.repo.m.stamp(&instance.Base)
	f.repo.m.instances = append(f.repo.m.instances, instance)
	f.instanceID = instance.ID

	f.baseModule = f.addModule(0, nil)
	f.chapter = f.addChapter(1, nil)

	f.manager = NewServiceManager(f.repo, f.grader, f.publisher, logger, validator.New(), DefaultServiceManagerConfig())
	require.NoError(t, f.manager.Initialize(f.ctx))
	f.setNow(f.now)
	return f
}

// setNow moves the clock every service reads.
func (f *fixture) setNow(now time.Time) {
	f.now = now
	clock := func() time.Time { return f.now }
	f.manager.Submission().(*submissionService).now = clock
	f.manager.PeerReview().(*peerReviewService).now = clock
	f.manager.Regrading().(*regradingService).now = clock
	f.manager.Progression().(*progressionService).now = clock
}

func (f *fixture) addModule(order int, configure func(*models.CourseModule)) *models.CourseModule {
	m := &models.CourseModule{CourseID: f.courseID, OrderNumber: order}
	if configure != nil {
		configure(m)
	}
	f.repo.m.stamp(&m.Base)
	f.repo.m.modules = append(f.repo.m.modules, m)
	return m
}

func (f *fixture) addChapter(number int, module *models.CourseModule) *models.Chapter {
	c := &models.Chapter{CourseID: f.courseID, Name: "chapter", ChapterNumber: number}
	if module != nil {
		c.CourseModuleID = &module.ID
	}
	f.repo.m.stamp(&c.Base)
	f.repo.m.chapters = append(f.repo.m.chapters, c)
	return c
}

// addExercise adds a course exercise to the given chapter, or to the fixture's first chapter.
func (f *fixture) addExercise(chapter *models.Chapter, configure func(*models.Exercise)) *models.Exercise {
	if chapter == nil {
		chapter = f.chapter
	}
	courseID := f.courseID
	chapterID := chapter.ID
	e := &models.Exercise{Name: "exercise", CourseID: &courseID, ChapterID: &chapterID, ScoreMaximum: 1}
	if configure != nil {
		configure(e)
	}
	f.repo.m.stamp(&e.Base)
	f.repo.m.exercises = append(f.repo.m.exercises, e)
	return e
}

func (f *fixture) addExamExercise(exam *models.Exam) *models.Exercise {
	examID := exam.ID
	e := &models.Exercise{Name: "exam exercise", ExamID: &examID, ScoreMaximum: 1}
	f.repo.m.stamp(&e.Base)
	f.repo.m.exercises = append(f.repo.m.exercises, e)
	return e
}

func (f *fixture) addExam() *models.Exam {
	e := &models.Exam{Name: "exam"}
	f.repo.m.stamp(&e.Base)
	f.repo.m.exams = append(f.repo.m.exams, e)
	return e
}

func (f *fixture) addSlide(exercise *models.Exercise) *models.ExerciseSlide {
	s := &models.ExerciseSlide{ExerciseID: exercise.ID}
	f.repo.m.stamp(&s.Base)
	f.repo.m.slides = append(f.repo.m.slides, s)
	return s
}

func (f *fixture) addTask(slide *models.ExerciseSlide, exerciseType string) *models.ExerciseTask {
	task := &models.ExerciseTask{
		ExerciseSlideID:   slide.ID,
		ExerciseType:      exerciseType,
		PrivateSpec:       []byte(`{"correct":"a"}`),
		ModelSolutionSpec: []byte(`{"solution":"a"}`),
	}
	f.repo.m.stamp(&task.Base)
	f.repo.m.tasks = append(f.repo.m.tasks, task)
	return task
}

func (f *fixture) addService(slug string, maxAtOnce int) {
	d := &models.ExerciseServiceDescriptor{
		Service: models.ExerciseService{
			Name:                             slug,
			Slug:                             slug,
			PublicURL:                        "http://" + slug,
			MaxReprocessingSubmissionsAtOnce: maxAtOnce,
		},
		Info: models.ExerciseServiceInfo{GradeEndpointPath: "/grade"},
	}
	f.repo.m.stamp(&d.Service.Base)
	f.repo.m.services = append(f.repo.m.services, d)
}

func (f *fixture) addPeerReviewConfig(exercise *models.Exercise, configure func(*models.PeerReviewConfig)) *models.PeerReviewConfig {
	exerciseID := exercise.ID
	c := &models.PeerReviewConfig{
		CourseID:                 f.courseID,
		ExerciseID:               &exerciseID,
		PeerReviewsToGive:        1,
		PeerReviewsToReceive:     1,
		AcceptingThreshold:       2.5,
		ProcessingStrategy:       models.AutomaticallyGradeByAverage,
		PointsAreAllOrNothing:    true,
		ManualReviewCutoffInDays: 21,
	}
	if configure != nil {
		configure(c)
	}
	f.repo.m.stamp(&c.Base)
	f.repo.m.configs = append(f.repo.m.configs, c)
	return c
}

func (f *fixture) addQuestion(cfg *models.PeerReviewConfig, questionType models.PeerReviewQuestionType, weight float64) *models.PeerReviewQuestion {
	q := &models.PeerReviewQuestion{
		PeerReviewConfigID: cfg.ID,
		OrderNumber:        len(f.repo.m.questions),
		Question:           "How good is the answer?",
		QuestionType:       questionType,
		AnswerRequired:     true,
		Weight:             weight,
	}
	f.repo.m.stamp(&q.Base)
	f.repo.m.questions = append(f.repo.m.questions, q)
	return q
}

// submit answers every task of the slide with a fixed grading result.
func (f *fixture) submit(userID uuid.UUID, exercise *models.Exercise, slide *models.ExerciseSlide, result *models.ExerciseTaskGradingResult) (*models.StudentExerciseSlideSubmissionResult, error) {
	req := f.slideRequest(userID, exercise, slide)
	req.FixedGrading = result
	return f.manager.Submission().SubmitSlide(f.ctx, req)
}

func (f *fixture) slideRequest(userID uuid.UUID, exercise *models.Exercise, slide *models.ExerciseSlide) *SubmitSlideRequest {
	var answers []models.StudentExerciseTaskSubmission
	for _, task := range f.repo.m.tasks {
		if task.ExerciseSlideID == slide.ID {
			answers = append(answers, models.StudentExerciseTaskSubmission{
				ExerciseTaskID: task.ID,
				DataJSON:       json.RawMessage(`{"answer":"a"}`),
			})
		}
	}
	req := &SubmitSlideRequest{
		UserID:     userID,
		ExerciseID: exercise.ID,
		Submission: models.StudentExerciseSlideSubmission{
			ExerciseSlideID:         slide.ID,
			ExerciseTaskSubmissions: answers,
		},
	}
	if !exercise.IsExamExercise() {
		instanceID := f.instanceID
		req.CourseInstanceID = &instanceID
	}
	return req
}

func (f *fixture) mustSubmit(userID uuid.UUID, exercise *models.Exercise, slide *models.ExerciseSlide, result *models.ExerciseTaskGradingResult) *models.StudentExerciseSlideSubmissionResult {
	f.t.Helper()
	res, err := f.submit(userID, exercise, slide, result)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) state(userID uuid.UUID, exercise *models.Exercise) *models.UserExerciseState {
	f.t.Helper()
	stateCtx := models.ExerciseStateContext{CourseInstanceID: &f.instanceID}
	if exercise.IsExamExercise() {
		stateCtx = models.ExerciseStateContext{ExamID: exercise.ExamID}
	}
	state, err := f.repo.UserExerciseState().Get(f.ctx, userID, exercise.ID, stateCtx)
	require.NoError(f.t, err)
	return state
}

func gradingResult(scoreGiven float64, scoreMaximum int) *models.ExerciseTaskGradingResult {
	return &models.ExerciseTaskGradingResult{
		GradingProgress: models.GradingProgressFullyGraded,
		ScoreGiven:      scoreGiven,
		ScoreMaximum:    scoreMaximum,
	}
}

func scaleAnswer(q *models.PeerReviewQuestion, value float64) models.PeerReviewAnswer {
	return models.PeerReviewAnswer{PeerReviewQuestionID: q.ID, NumberData: &value}
}
