// Package mix provides the smoothed crossfade used between parallel signal
// paths: the model blend stage (profile vs. recurrent output) and the cabinet
// mix stage (impulse channel 0 vs. channel 1).
//
// The interpolation weight is a one-pole exponential smoother with a fixed
// 0.999 coefficient, so weight changes glide over roughly a thousand samples
// regardless of sample rate. This keeps abrupt control moves and source
// re-routing free of zipper noise and clicks.
package mix
