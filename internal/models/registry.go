package models

// AllModels lists every persisted type in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Course{},
		&CourseInstance{},
		&Exam{},
		&CourseModule{},
		&Chapter{},
		&UserChapterLockingStatus{},
		&CourseModuleCompletion{},
		&Exercise{},
		&ExerciseSlide{},
		&ExerciseTask{},
		&ExerciseService{},
		&ExerciseServiceInfo{},
		&ExerciseSlideSubmission{},
		&ExerciseTaskSubmission{},
		&ExerciseTaskGrading{},
		&UserExerciseState{},
		&UserExerciseSlideState{},
		&UserExerciseTaskState{},
		&TeacherGradingDecision{},
		&PeerReviewConfig{},
		&PeerReviewQuestion{},
		&PeerReviewSubmission{},
		&PeerReviewQuestionSubmission{},
		&PeerReviewQueueEntry{},
		&OfferedAnswerToPeerReview{},
		&FlaggedAnswer{},
		&Regrading{},
		&ExerciseTaskRegradingSubmission{},
	}
}
