// Package lars computes the lasso regularization path by least angle
// regression with the lasso modification: predictors enter the active set in
// order of correlation with the residual and leave it when their coefficient
// crosses zero. Path entries carry the common absolute correlation as lambda,
// so they are directly comparable with FISTA paths.
package lars
