// Package async runs background work with panic recovery and timeouts.
//
// SafeGo launches one task; WorkerPool and Batch bound how many tasks run at
// once. Failures are logged through logrus rather than crashing the caller.
package async
