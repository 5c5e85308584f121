package metadata

/** Definition for the body of a job. */
type JobStart func() error

/** Definition for completion of a job. */
type JobOnComplete func(err error)

/**
 * @brief Describes a job to be run by the job system.
 */
type JobTask struct {
	/** @brief Invoked on a worker. Required. */
	OnStart JobStart
	/** @brief Invoked after OnStart with its result. Optional. */
	OnComplete JobOnComplete
}
