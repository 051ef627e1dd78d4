package strategy

// Categories is the App Store category list the random strategy draws from.
var Categories = []string{
	"Books",
	"Business",
	"Developer Tools",
	"Education",
	"Entertainment",
	"Finance",
	"Food & Drink",
	"Games",
	"Graphics & Design",
	"Health & Fitness",
	"Lifestyle",
	"Kids",
	"Magazines & Newspapers",
	"Medical",
	"Music",
	"Navigation",
	"News",
	"Photo & Video",
	"Productivity",
	"Reference",
	"Shopping",
	"Social Networking",
	"Sports",
	"Travel",
	"Utilities",
	"Weather",
	"Action Games",
	"Adventure Games",
	"Board Games",
	"Card Games",
	"Casual Games",
	"Puzzle Games",
	"Racing Games",
	"Role Playing Games",
	"Simulation Games",
	"Strategy Games",
	"Word Games",
	"Meditation & Mindfulness",
	"Personal Finance",
	"Language Learning",
	"Home Automation",
	"Pets",
}

// TrendingCategories are sampled evenly by the trending strategy.
var TrendingCategories = []string{
	"Health & Fitness",
	"Productivity",
	"Finance",
	"Photo & Video",
	"Education",
}

// DefaultCategory seeds the category strategy when a job has none.
const DefaultCategory = "Productivity"
