// Package viz renders optimization progress and run summaries for the
// terminal.
//
//   - [RenderReport]: one line per committed iteration
//   - [RenderRunTable] and [RenderRunSummary]: stored runs
//   - [PlotCurve]: braille plot of a potential or distribution
//   - Theme selection with three built-in color schemes
package viz
