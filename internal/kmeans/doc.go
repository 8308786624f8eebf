// Package kmeans implements k-means clustering for quantization training.
//
// Product quantization runs one TrainKMeans per chunk of the vector
// dimensions to learn that chunk's codebook.
package kmeans
